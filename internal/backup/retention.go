package backup

import (
	"context"
	"fmt"
)

// SweepRetention applies both retention rules and returns the total
// number of records deleted. The rules are independent: the age rule
// removes records older than RetentionDays, and the count rule removes
// the oldest records beyond MaxCount. Both run on every sweep; a zero
// threshold disables its rule.
func (s *Service) SweepRetention(ctx context.Context) (int, error) {
	deleted := 0

	if s.policy.RetentionDays > 0 {
		cutoff := s.now().UTC().AddDate(0, 0, -s.policy.RetentionDays)
		n, err := s.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("age sweep failed: %w", err)
		}
		deleted += n
	}

	if s.policy.MaxCount > 0 {
		count, err := s.store.CountAll(ctx)
		if err != nil {
			return deleted, fmt.Errorf("count sweep failed: %w", err)
		}
		if count > s.policy.MaxCount {
			n, err := s.store.DeleteOldestExcess(ctx, s.policy.MaxCount)
			if err != nil {
				return deleted, fmt.Errorf("count sweep failed: %w", err)
			}
			deleted += n
		}
	}

	return deleted, nil
}
