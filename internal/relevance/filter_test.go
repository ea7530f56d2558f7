package relevance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilter_DefaultVocabulary(t *testing.T) {
	t.Parallel()

	f := New(DefaultKeywords)
	cases := []struct {
		title       string
		description string
		expected    bool
	}{
		{"Sunrise YOGA in the park", "", true},
		{"Community gathering", "A guided Meditation for beginners", true},
		{"Pottery Workshop", "", true},
		{"Mental Health Awareness Walk", "", true},
		{"Stand-up Comedy Night", "laughs guaranteed", false},
		{"", "", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expected, f.IsRelevant(tc.title, tc.description), tc.title)
	}
}

func TestFilter_SubstitutedVocabulary(t *testing.T) {
	t.Parallel()

	f := New([]string{"  Chess ", "", "GO club"})
	require.Equal(t, []string{"chess", "go club"}, f.Keywords())
	require.True(t, f.IsRelevant("Weekend CHESS meetup", ""))
	require.True(t, f.IsRelevant("Downtown", "the go club meets"))
	require.False(t, f.IsRelevant("Sunrise yoga", ""))
}

func TestFilter_EmptyVocabularyMatchesNothing(t *testing.T) {
	t.Parallel()

	f := New(nil)
	require.False(t, f.IsRelevant("Yoga", "wellness"))
}
