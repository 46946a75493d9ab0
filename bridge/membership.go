package bridge

import "context"

// MembershipFunc adapts a plain function to MembershipStore.
type MembershipFunc func(ctx context.Context, chatID, userA, userB string) (bool, error)

func (f MembershipFunc) IsMemberPair(ctx context.Context, chatID, userA, userB string) (bool, error) {
	return f(ctx, chatID, userA, userB)
}

// AllowAllMembership reports every user pair as sharing every
// conversation. For development setups without a membership store.
func AllowAllMembership() MembershipStore {
	return MembershipFunc(func(context.Context, string, string, string) (bool, error) {
		return true, nil
	})
}
