package batch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecoveryFile(t *testing.T) {
	input := strings.Join([]string{
		"https://cdn.example/a.jpg",
		"  out=user_A.jpg",
		"",
		"# comment",
		"https://cdn.example/no-out.jpg",
		"https://cdn.example/b.mp4",
		"\tout=user_B.mp4",
		"https://cdn.example/empty.jpg",
		"  out=",
		"# key=KEY_1",
		"https://cdn.example/c.jpg",
		"  out=user_KEY_1.jpg",
		"https://cdn.example/last.jpg",
	}, "\n")

	items, malformed, err := ParseRecoveryFile(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []Item{
		{URL: "https://cdn.example/a.jpg", Filename: "user_A.jpg"},
		{URL: "https://cdn.example/b.mp4", Filename: "user_B.mp4"},
		{URL: "https://cdn.example/c.jpg", Filename: "user_KEY_1.jpg", Key: "KEY_1"},
	}, items)

	require.Len(t, malformed, 3)
	assert.Equal(t, 5, malformed[0].Line)
	assert.Equal(t, "https://cdn.example/no-out.jpg", malformed[0].URL)
	assert.Equal(t, "https://cdn.example/empty.jpg", malformed[1].URL)
	assert.Contains(t, malformed[2].Error(), "last.jpg has no out= line")
}

func TestFormatRecoveryFileRoundTrip(t *testing.T) {
	items := []Item{
		{URL: "https://cdn.example/a.jpg?sig=1&e=2", Filename: "user_A.jpg"},
		{URL: "https://cdn.example/b.mp4", Filename: "user_B_2.mp4", Key: "B"},
		{URL: "https://cdn.example/c.mp4", Filename: "user_C_1_3.mp4", Key: "C_1"},
	}

	parsed, malformed, err := ParseRecoveryFile(strings.NewReader(string(FormatRecoveryFile(items))))
	require.NoError(t, err)

	assert.Empty(t, malformed)
	assert.Equal(t, items, parsed)
}

func TestKeyLineAppliesToNextURLOnly(t *testing.T) {
	input := "# key=A\n# unrelated\nhttps://cdn.example/a.jpg\n  out=a.jpg\n" +
		"# key=B\nhttps://cdn.example/b.jpg\n  out=b.jpg\nhttps://cdn.example/c.jpg\n  out=c.jpg\n"

	items, malformed, err := ParseRecoveryFile(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, malformed)
	require.Len(t, items, 3)
	assert.Empty(t, items[0].Key, "another comment cancels the key line")
	assert.Equal(t, "B", items[1].Key)
	assert.Empty(t, items[2].Key)
}
