package slackbot

import (
	"regexp"
	"strings"

	"cellreport/internal/config"

	"github.com/slack-go/slack"
)

type userLister interface {
	GetUsers(options ...slack.GetUsersOption) ([]slack.User, error)
}

// ResolveLeaderSlackIDs maps leader IDs to Slack user IDs. A leader's Slack
// field may already be a user ID; anything else is matched against the
// workspace's user names. Leaders without a Slack field are skipped.
func ResolveLeaderSlackIDs(api userLister, leaders []config.Leader) (map[string]string, []string, error) {
	resolved := make(map[string]string)
	var byName []config.Leader
	for _, l := range leaders {
		val := strings.TrimSpace(l.Slack)
		if val == "" {
			continue
		}
		if isLikelySlackID(val) {
			resolved[l.ID] = val
		} else {
			byName = append(byName, l)
		}
	}
	if len(byName) == 0 {
		return resolved, nil, nil
	}

	users, err := api.GetUsers()
	if err != nil {
		var unresolved []string
		for _, l := range byName {
			unresolved = append(unresolved, l.ID)
		}
		return resolved, unresolved, err
	}

	nameToID := make(map[string]string)
	for _, user := range users {
		if user.Deleted || user.IsBot {
			continue
		}
		addName := func(n string) {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				return
			}
			if _, exists := nameToID[n]; !exists {
				nameToID[n] = user.ID
			}
		}
		addName(user.Name)
		addName(user.RealName)
		addName(user.Profile.DisplayName)
	}

	var unresolved []string
	for _, l := range byName {
		key := strings.ToLower(strings.TrimSpace(l.Slack))
		if id, ok := nameToID[key]; ok {
			resolved[l.ID] = id
			continue
		}
		if id := fuzzyMatch(users, l.Slack); id != "" {
			resolved[l.ID] = id
			continue
		}
		unresolved = append(unresolved, l.ID)
	}
	return resolved, unresolved, nil
}

// fuzzyMatch returns the only user whose names contain every token of
// entry, or "" when none or several do.
func fuzzyMatch(users []slack.User, entry string) string {
	match := ""
	for _, user := range users {
		if user.Deleted || user.IsBot {
			continue
		}
		for _, cand := range []string{user.RealName, user.Profile.DisplayName, user.Name} {
			if nameMatches(entry, cand) {
				if match != "" && match != user.ID {
					return ""
				}
				match = user.ID
				break
			}
		}
	}
	return match
}

func isLikelySlackID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

var parenPattern = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)

func normalizeNameTokens(s string) []string {
	if s == "" {
		return nil
	}
	s = parenPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

func nameMatches(entry, candidate string) bool {
	entryTokens := normalizeNameTokens(entry)
	candTokens := normalizeNameTokens(candidate)
	if len(entryTokens) == 0 || len(candTokens) == 0 {
		return false
	}
	candSet := make(map[string]bool, len(candTokens))
	for _, t := range candTokens {
		candSet[t] = true
	}
	for _, t := range entryTokens {
		if !candSet[t] {
			return false
		}
	}
	return true
}
