package devserver

import "fmt"

var demoLines = []string{
	"hi! are you coming tonight?",
	"yes, see you at eight",
	"great 👍",
}

// SeedDemo starts a conversation between the first user and every other
// user and fills it with a short exchange, so a fresh server has
// something to show. The first user's conversations are left unread.
// A backend where the first user already has conversations is left alone.
func SeedDemo(s Backend) error {
	users, err := s.Users()
	if err != nil {
		return err
	}
	if len(users) < 2 {
		return fmt.Errorf("seed needs at least two users, have %d", len(users))
	}
	first := users[0]
	existing, err := s.ListConversations(first.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, other := range users[1:] {
		th, err := s.StartConversation(other.ID, first.ID)
		if err != nil {
			return fmt.Errorf("start %s/%s: %w", other.Username, first.Username, err)
		}
		convID, ok := parseID(th.ConversationID)
		if !ok {
			return fmt.Errorf("conversation id %q is not numeric", th.ConversationID)
		}
		for i, line := range demoLines {
			from := other.ID
			if i%2 == 1 {
				from = first.ID
			}
			if _, err := s.SendMessage(from, convID, line); err != nil {
				return fmt.Errorf("seed message: %w", err)
			}
		}
	}
	return nil
}
