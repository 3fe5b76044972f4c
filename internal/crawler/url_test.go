package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTP://News.Example/Politics", "http://news.example/Politics"},
		{"strips default http port", "http://news.example:80/a", "http://news.example/a"},
		{"strips default https port", "https://news.example:443/a", "https://news.example/a"},
		{"keeps explicit port", "http://news.example:8080/a", "http://news.example:8080/a"},
		{"strips trailing slash", "http://news.example/world/", "http://news.example/world"},
		{"strips root slash", "http://news.example/", "http://news.example"},
		{"drops fragment", "http://news.example/a#section-2", "http://news.example/a"},
		{"sorts query params", "http://news.example/a?b=2&a=1", "http://news.example/a?a=1&b=2"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTP://News.Example:80/World/#top",
		"https://news.example/a?z=9&a=1",
		"http://news.example/",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	}
}

func TestNormalizeURL_Rejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"ftp://news.example/file", "news.example/path", "mailto:desk@news.example", "://bad"} {
		_, err := NormalizeURL(in)
		require.Error(t, err, in)
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "news.example", HostOf("http://News.Example:8080/a"))
	require.Equal(t, "", HostOf("://bad"))
}
