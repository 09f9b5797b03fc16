package actors

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"agentchain/approval"
	"agentchain/cadre"
	"agentchain/directory"
	"agentchain/hierarchy"
	"agentchain/outbox"
)

// Fixture carries the seeded reference data the actors operate on.
type Fixture struct {
	AgentIDs   []string
	ApproverID string
	BranchID   string
	AccountID  string
	CategoryID string
}

// Submitter files joining and promotion fee requests for random agents.
func Submitter(ctx context.Context, svc *approval.Service, fx Fixture, stop <-chan struct{}) error {
	levels := []string{"APM", "PM", "SPM", "MD"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		params := approval.SubmitParams{
			AgentID:           fx.AgentIDs[rand.Intn(len(fx.AgentIDs))],
			BillingCategoryID: fx.CategoryID,
			BranchID:          fx.BranchID,
			AccountID:         fx.AccountID,
		}
		if rand.Intn(2) == 0 {
			params.Purpose = cadre.PurposeJoiningFee
			params.JoiningLevel = levels[rand.Intn(len(levels))]
		} else {
			params.Purpose = cadre.PurposePromotionFee
			params.PromotionLevel = levels[rand.Intn(len(levels))]
		}

		if _, err := svc.Submit(ctx, params); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Approver advances pending requests, tolerating races with other approvers.
func Approver(ctx context.Context, svc *approval.Service, fx Fixture, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		items, _, err := svc.List(ctx, approval.Filters{State: approval.StatePending, PageSize: 5})
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := svc.Approve(ctx, item.ID, fx.ApproverID); err != nil &&
				!errors.Is(err, approval.ErrInvalidTransition) && !errors.Is(err, context.Canceled) {
				return err
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

// Rejecter turns down a share of pending requests, racing the approver. Later
// rejections for already-unlocked agents must never re-lock their chains.
func Rejecter(ctx context.Context, svc *approval.Service, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		items, _, err := svc.List(ctx, approval.Filters{State: approval.StatePending, PageSize: 5})
		if err != nil {
			return err
		}
		for _, item := range items {
			if rand.Intn(3) != 0 {
				continue
			}
			if _, err := svc.Reject(ctx, item.ID, "spot check failed"); err != nil &&
				!errors.Is(err, approval.ErrInvalidTransition) && !errors.Is(err, context.Canceled) {
				return err
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

// Payer marks approved requests paid, racing the chain editors on the gate.
func Payer(ctx context.Context, svc *approval.Service, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		items, _, err := svc.List(ctx, approval.Filters{State: approval.StateApproved, PageSize: 5})
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := svc.MarkPaid(ctx, item.ID); err != nil &&
				!errors.Is(err, approval.ErrInvalidTransition) && !errors.Is(err, context.Canceled) {
				return err
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

// ChainEditor hammers random slots with random targets. Gate and reference
// violations are the expected outcome under contention; anything else fails.
func ChainEditor(ctx context.Context, svc *hierarchy.Service, fx Fixture, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		owner := fx.AgentIDs[rand.Intn(len(fx.AgentIDs))]
		target := fx.AgentIDs[rand.Intn(len(fx.AgentIDs))]
		slot := hierarchy.Slots[rand.Intn(len(hierarchy.Slots))]

		_, err := svc.SetSlot(ctx, hierarchy.SetSlotParams{AgentID: owner, Slot: slot, Target: &target})
		switch {
		case err == nil:
		case errors.Is(err, hierarchy.ErrChainLocked),
			errors.Is(err, hierarchy.ErrInvalidReference),
			errors.Is(err, directory.ErrNotFound),
			errors.Is(err, context.Canceled):
		default:
			return err
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Drainer consumes the outbox alongside the writers.
func Drainer(ctx context.Context, relay *outbox.Relay, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if _, err := relay.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
}
