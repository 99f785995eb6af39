package notifications

// CollectTokens returns the push tokens of recipients, skipping users without
// one. A token shared by several users (one device, several accounts) is
// returned once so the device is not alerted twice.
func CollectTokens(recipients []Recipient) []string {
	seen := make(map[string]struct{}, len(recipients))
	tokens := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.PushToken == "" {
			continue
		}
		if _, dup := seen[r.PushToken]; dup {
			continue
		}
		seen[r.PushToken] = struct{}{}
		tokens = append(tokens, r.PushToken)
	}
	return tokens
}
