package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestAvatarURL(t *testing.T) {
	tests := []struct {
		name string
		raw  RawIdentity
		want string
	}{
		{
			name: "static avatar",
			raw:  RawIdentity{ID: "42", Avatar: strPtr("abcdef")},
			want: "https://cdn.discordapp.com/avatars/42/abcdef.png",
		},
		{
			name: "animated avatar",
			raw:  RawIdentity{ID: "42", Avatar: strPtr("a_abcdef")},
			want: "https://cdn.discordapp.com/avatars/42/a_abcdef.gif",
		},
		{
			name: "no avatar uses discriminator mod 5",
			raw:  RawIdentity{ID: "544896191507275776", Username: "laylay98", Discriminator: "1"},
			want: "https://cdn.discordapp.com/embed/avatars/1.png",
		},
		{
			name: "discriminator wraps around",
			raw:  RawIdentity{ID: "42", Discriminator: "0007"},
			want: "https://cdn.discordapp.com/embed/avatars/2.png",
		},
		{
			name: "missing discriminator is zero",
			raw:  RawIdentity{ID: "42"},
			want: "https://cdn.discordapp.com/embed/avatars/0.png",
		},
		{
			name: "empty avatar hash falls back to default",
			raw:  RawIdentity{ID: "42", Avatar: strPtr(""), Discriminator: "4"},
			want: "https://cdn.discordapp.com/embed/avatars/4.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvatarURL(&tt.raw))
		})
	}
}

func TestNormalize_MapsGuilds(t *testing.T) {
	raw := &RawIdentity{ID: "1", Username: "alice", Email: strPtr("alice@example.com")}
	guilds := []RawGuild{
		{ID: "10", Name: "With Icon", Icon: strPtr("iconhash"), Owner: true, Permissions: 8},
		{ID: "11", Name: "Animated", Icon: strPtr("a_iconhash")},
		{ID: "12", Name: "No Icon"},
	}

	user := Normalize(raw, guilds, 0)

	require.Len(t, user.Guilds, 3)
	require.NotNil(t, user.Guilds[0].IconURL)
	assert.Equal(t, "https://cdn.discordapp.com/icons/10/iconhash.png", *user.Guilds[0].IconURL)
	assert.True(t, user.Guilds[0].Owner)
	assert.Equal(t, uint64(8), user.Guilds[0].Permissions)
	require.NotNil(t, user.Guilds[1].IconURL)
	assert.Equal(t, "https://cdn.discordapp.com/icons/11/a_iconhash.gif", *user.Guilds[1].IconURL)
	assert.Nil(t, user.Guilds[2].IconURL)
	assert.Equal(t, "alice@example.com", user.EmailOrEmpty())
}

func TestNormalize_GuildLimit(t *testing.T) {
	guilds := make([]RawGuild, 15)
	for i := range guilds {
		guilds[i] = RawGuild{ID: string(rune('a' + i)), Name: "g"}
	}
	raw := &RawIdentity{ID: "1", Username: "alice"}

	assert.Len(t, Normalize(raw, guilds, 10).Guilds, 10)
	assert.Len(t, Normalize(raw, guilds, 0).Guilds, 15)
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := &RawIdentity{ID: "1", Username: "alice", Avatar: strPtr("a_x"), Locale: strPtr("en-US")}
	guilds := []RawGuild{{ID: "10", Name: "g", Icon: strPtr("h")}}

	assert.Equal(t, Normalize(raw, guilds, 10), Normalize(raw, guilds, 10))
}

func TestNormalize_NoGuilds_ReturnsEmptySlice(t *testing.T) {
	user := Normalize(&RawIdentity{ID: "1", Username: "alice"}, nil, 10)
	assert.NotNil(t, user.Guilds)
	assert.Empty(t, user.Guilds)
}
