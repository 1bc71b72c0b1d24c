package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/pterolink/pterolink/errors"
)

func newVerificationHarness(t *testing.T) (*VerificationService, *memChallengeRepo, *memServerRepo, *stubPanel) {
	t.Helper()
	challenges := newMemChallengeRepo()
	servers := newMemServerRepo()
	panel := &stubPanel{}
	svc := NewVerificationService(challenges, servers, &stubProvider{panel: panel})
	return svc, challenges, servers, panel
}

func proofLine(issue *ChallengeIssue) string {
	return fmt.Sprintf("%s:%s:%s", proofPrefix, issue.Code, issue.Token)
}

func TestIssueChallengeShape(t *testing.T) {
	svc, _, _, _ := newVerificationHarness(t)

	issue, err := svc.IssueChallenge(context.Background(), "user-1", "srv-1", "guild-42")
	require.NoError(t, err)

	assert.Len(t, issue.Code, codeLength)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, issue.Code)
	assert.Len(t, issue.Token, tokenBytes*2)
	assert.Contains(t, issue.Instructions, issue.Code)
	assert.Contains(t, issue.Instructions, issue.Token)
	assert.Contains(t, issue.Instructions, proofFilePath)
	assert.WithinDuration(t, time.Now().Add(challengeTTL), issue.ExpiresAt, time.Minute)
}

func TestIssueChallengeUniqueness(t *testing.T) {
	svc, _, _, _ := newVerificationHarness(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		issue, err := svc.IssueChallenge(context.Background(), "user-1", "srv-1", "")
		require.NoError(t, err)
		assert.False(t, seen[issue.Token], "tokens must not repeat")
		seen[issue.Token] = true
	}
}

func TestAdjudicateSuccessLinksServer(t *testing.T) {
	svc, _, servers, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "guild-42")
	require.NoError(t, err)
	panel.fileContents = proofLine(issue) + "\n"

	require.NoError(t, svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code))

	linked, err := servers.Get(ctx, "user-1", "srv-1")
	require.NoError(t, err)
	assert.True(t, linked.Verified)
	assert.Equal(t, "guild-42", linked.OriginContext)
	assert.Equal(t, "survival world", linked.ServerName)

	allowed, err := svc.HasServerPermission(ctx, "user-1", "srv-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAdjudicateAcceptsLowercaseAndPadding(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = proofLine(issue)

	submitted := "  " + strings.ToLower(issue.Code) + " "
	assert.NoError(t, svc.Adjudicate(ctx, "user-1", "srv-1", submitted))
}

func TestAdjudicateReplayRejected(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = proofLine(issue)

	require.NoError(t, svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code))

	err = svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code)
	assert.ErrorIs(t, err, serrors.ErrNoActiveChallenge)
}

func TestAdjudicateWrongCode(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = proofLine(issue)

	err = svc.Adjudicate(ctx, "user-1", "srv-1", "ZZZZ9999")
	assert.ErrorIs(t, err, serrors.ErrProofMismatch)

	// The challenge survives the failed attempt.
	assert.NoError(t, svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code))
}

func TestAdjudicateMalformedCode(t *testing.T) {
	svc, _, _, _ := newVerificationHarness(t)

	for _, code := range []string{"", "short", "TOO-LONG-CODE", "ABCD123!"} {
		err := svc.Adjudicate(context.Background(), "user-1", "srv-1", code)
		assert.ErrorIs(t, err, serrors.ErrProofMismatch, "code %q", code)
	}
}

func TestAdjudicateNoChallenge(t *testing.T) {
	svc, _, _, _ := newVerificationHarness(t)

	err := svc.Adjudicate(context.Background(), "user-1", "srv-1", "ABCD1234")
	assert.ErrorIs(t, err, serrors.ErrNoActiveChallenge)
}

func TestAdjudicateExpiredChallenge(t *testing.T) {
	svc, challenges, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	svc.now = func() time.Time { return past }
	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = proofLine(issue)
	svc.now = time.Now

	// GetActive filters expired challenges out, so adjudication sees none.
	err = svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code)
	assert.ErrorIs(t, err, serrors.ErrNoActiveChallenge)

	// Consuming the stored record directly reports expiry.
	challenges.mu.Lock()
	var id string
	for _, c := range challenges.challenges {
		id = c.ID
	}
	challenges.mu.Unlock()
	_, err = challenges.Consume(ctx, id)
	assert.ErrorIs(t, err, serrors.ErrChallengeExpired)
}

func TestAdjudicateProofNotEmitted(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = "some unrelated file contents\n"

	err = svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code)
	assert.ErrorIs(t, err, serrors.ErrProofMismatch)
}

func TestAdjudicateProofWithWrongToken(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = fmt.Sprintf("%s:%s:%s", proofPrefix, issue.Code, "forged-token")

	err = svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code)
	assert.ErrorIs(t, err, serrors.ErrProofMismatch)
}

func TestAdjudicateProofAmongOtherLines(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = "garbage line\n" +
		proofPrefix + ":WRONG123:stale-token\n" +
		proofLine(issue) + "\n"

	assert.NoError(t, svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code))
}

func TestAdjudicateUsesLatestChallenge(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base.Add(-time.Hour) }
	stale, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return base }
	fresh, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileContents = proofLine(fresh)

	err = svc.Adjudicate(ctx, "user-1", "srv-1", stale.Code)
	assert.ErrorIs(t, err, serrors.ErrProofMismatch)

	assert.NoError(t, svc.Adjudicate(ctx, "user-1", "srv-1", fresh.Code))
}

func TestHasServerPermissionUnlinked(t *testing.T) {
	svc, _, _, _ := newVerificationHarness(t)

	allowed, err := svc.HasServerPermission(context.Background(), "user-1", "srv-unknown")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAdjudicatePanelUnavailable(t *testing.T) {
	svc, _, _, panel := newVerificationHarness(t)
	ctx := context.Background()

	issue, err := svc.IssueChallenge(ctx, "user-1", "srv-1", "")
	require.NoError(t, err)
	panel.fileErr = serrors.NewPanelError(502, "bad gateway")

	err = svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code)
	assert.ErrorIs(t, err, serrors.ErrUpstreamUnavailable)

	// A transport failure must not consume the challenge.
	panel.fileErr = nil
	panel.fileContents = proofLine(issue)
	assert.NoError(t, svc.Adjudicate(ctx, "user-1", "srv-1", issue.Code))
}
