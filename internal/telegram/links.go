package telegram

import "fmt"

// LinkUnavailable is returned when no public link can be built for a post.
const LinkUnavailable = "N/A"

// PostLink builds the t.me link for a message. Public channels link through
// the username, private channels through the /c/<id> form. Returns
// LinkUnavailable when the channel or message id cannot produce a link.
func PostLink(ch *Channel, msgID int) string {
	if ch == nil || msgID <= 0 {
		return LinkUnavailable
	}
	if ch.Username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", ch.Username, msgID)
	}
	if ch.ID != 0 {
		return fmt.Sprintf("https://t.me/c/%d/%d", ch.ID, msgID)
	}
	return LinkUnavailable
}
