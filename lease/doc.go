// Package lease coordinates exclusive control of robot resources on the
// client side.
//
// A Wallet caches the leases this process currently holds. Before a request
// is sent, Inject (or InjectOne) stamps it with the cached lease for every
// resource the call needs and fails fast with status.LeaseUnavailable when
// one is missing. When the response arrives, Reconcile folds each
// LeaseUseResult back into the wallet: accepted leases advance the cached
// epoch, and anything else is reported as a lease failure without touching
// wallet state.
//
//	w := lease.NewWallet(lease.WithClientName("operator-console"))
//	if err := w.Add(acquired); err != nil {
//	    return err
//	}
//	req := &mission.PlayMissionRequest{}
//	if err := lease.Inject(req, w, []string{"body"}); err != nil {
//	    return err // nothing was sent
//	}
//
// Wallets are explicit values; tests and independent logical clients can each
// own one.
package lease
