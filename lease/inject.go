package lease

import (
	"pkt.systems/robotrpc/api"
)

// MultiRequest is a request carrying a repeated lease field.
type MultiRequest interface {
	GetLeases() []api.Lease
	SetLeases([]api.Lease)
}

// SingleRequest is a request carrying one optional lease field.
type SingleRequest interface {
	GetLease() *api.Lease
	SetLease(*api.Lease)
}

// Inject stamps req with the wallet's leases for resources, in
// resource-name order. It is a no-op when resources is empty or when req
// already carries leases. When any resource has no cached lease it returns a
// status.LeaseUnavailable error and leaves req untouched.
func Inject(req MultiRequest, w *Wallet, resources []string) error {
	if req == nil || len(normalizeResources(resources)) == 0 {
		return nil
	}
	if len(req.GetLeases()) > 0 {
		return nil
	}
	leases, err := w.GetAll(resources)
	if err != nil {
		return err
	}
	req.SetLeases(leases)
	return nil
}

// InjectOne stamps req with the wallet's lease for resource. It is a no-op
// when resource is empty or req already carries a lease.
func InjectOne(req SingleRequest, w *Wallet, resource string) error {
	if req == nil || resource == "" {
		return nil
	}
	if req.GetLease() != nil {
		return nil
	}
	l, err := w.Get(resource)
	if err != nil {
		return err
	}
	req.SetLease(&l)
	return nil
}

// InjectAny dispatches to Inject or InjectOne depending on which lease field
// req exposes. Requests exposing neither are left alone only when no
// resources were requested.
func InjectAny(req any, w *Wallet, resources []string) error {
	names := normalizeResources(resources)
	if len(names) == 0 {
		return nil
	}
	switch r := req.(type) {
	case MultiRequest:
		return Inject(r, w, names)
	case SingleRequest:
		if len(names) != 1 {
			return ErrSingleLeaseRequest
		}
		return InjectOne(r, w, names[0])
	default:
		return ErrNoLeaseField
	}
}
