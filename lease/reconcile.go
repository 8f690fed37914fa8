package lease

import (
	"errors"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/status"
)

var (
	// ErrNoLeaseField is returned when resources are requested for a
	// message that has no lease field.
	ErrNoLeaseField = errors.New("lease: request has no lease field")
	// ErrSingleLeaseRequest is returned when more than one resource is
	// requested for a message that carries a single lease.
	ErrSingleLeaseRequest = errors.New("lease: request carries a single lease")
)

// MultiResponse is a response carrying one LeaseUseResult per lease.
type MultiResponse interface {
	GetLeaseUseResults() []api.LeaseUseResult
}

// SingleResponse is a response carrying one optional LeaseUseResult.
type SingleResponse interface {
	GetLeaseUseResult() *api.LeaseUseResult
}

// Results extracts the lease feedback carried by resp, if any.
func Results(resp any) []api.LeaseUseResult {
	switch r := resp.(type) {
	case MultiResponse:
		return r.GetLeaseUseResults()
	case SingleResponse:
		if res := r.GetLeaseUseResult(); res != nil {
			return []api.LeaseUseResult{*res}
		}
	}
	return nil
}

// Reconcile folds one LeaseUseResult into w and returns the lease failure it
// implies, if any. Only accepted results touch the wallet.
func Reconcile(w *Wallet, result api.LeaseUseResult) error {
	observed := observedLease(result)
	resource := result.Resource()
	switch result.Status {
	case api.LeaseUseOK:
		if observed == nil {
			return nil
		}
		return w.Advance(*observed)
	case api.LeaseUseOlder, api.LeaseUseInvalidLease, api.LeaseUseWrongEpoch:
		w.metrics.recordRejected(resource, result.Status)
		return leaseFailure(status.LeaseStale, resource, result)
	default:
		w.metrics.recordRejected(resource, result.Status)
		return leaseFailure(status.LeaseNotOwned, resource, result)
	}
}

// ReconcileAll reconciles every result, so the wallet sees all feedback even
// when an earlier one failed, and returns the first failure.
func ReconcileAll(w *Wallet, results []api.LeaseUseResult) error {
	var first error
	for _, r := range results {
		if err := Reconcile(w, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func observedLease(r api.LeaseUseResult) *api.Lease {
	if r.LatestKnownLease != nil && r.LatestKnownLease.IsValid() {
		return r.LatestKnownLease
	}
	if r.AttemptedLease != nil && r.AttemptedLease.IsValid() {
		return r.AttemptedLease
	}
	return nil
}

func leaseFailure(c status.Class, resource string, r api.LeaseUseResult) error {
	detail := r.Status.String()
	if r.Owner != "" {
		detail += " (owner " + r.Owner + ")"
	}
	return &status.Error{
		Class:    c,
		Domain:   api.LeaseUseDomain,
		Code:     int32(r.Status),
		Resource: resource,
		Detail:   detail,
	}
}
