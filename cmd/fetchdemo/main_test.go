package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run([]string{"bogus"})
	require.Error(t, err)
}

func TestRunRequiresACommand(t *testing.T) {
	err := run([]string{})
	require.Error(t, err)
}

func TestRunQueryArticle(t *testing.T) {
	err := run([]string{"run", "-query", "article", "-id", "1"})
	require.NoError(t, err)
}

func TestRunQueryArticleWithAuthor(t *testing.T) {
	err := run([]string{"run", "-query", "article-with-author", "-id", "2"})
	require.NoError(t, err)
}

func TestRunQueryFeed(t *testing.T) {
	err := run([]string{"run", "-query", "feed"})
	require.NoError(t, err)
}

func TestRunQueryUnknownNameFails(t *testing.T) {
	err := run([]string{"run", "-query", "bogus"})
	require.Error(t, err)
}

func TestHelpWithNoTopicPrintsRootUsage(t *testing.T) {
	require.NoError(t, cmdHelp(nil))
}

func TestHelpWithUnknownTopicFails(t *testing.T) {
	require.Error(t, cmdHelp([]string{"bogus"}))
}
