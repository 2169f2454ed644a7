// Copyright 2021 The httptxn Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"fmt"
	"net"

	"github.com/gogama/httptxn/neterr"
)

// A HostResolver resolves host names to IP addresses.
//
// Implementations must be safe for concurrent use by multiple
// goroutines.
type HostResolver interface {
	// LookupHost returns the addresses of host, or an error wrapping
	// neterr.NameNotResolved.
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// SystemResolver is a HostResolver backed by a net.Resolver. The zero
// value uses net.DefaultResolver.
type SystemResolver struct {
	Resolver *net.Resolver
}

// LookupHost resolves host. An IP literal resolves to itself without a
// lookup.
func (r SystemResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}
	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	addrs, err := res.LookupHost(ctx, host)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, neterr.Wrap(neterr.NameNotResolved, err)
	}
	if len(addrs) == 0 {
		return nil, neterr.Wrap(neterr.NameNotResolved, fmt.Errorf("no addresses for %q", host))
	}
	return addrs, nil
}

// StaticResolver is a HostResolver over a fixed table. Hosts missing
// from the table fail with neterr.NameNotResolved, except IP literals,
// which resolve to themselves.
type StaticResolver map[string][]string

// LookupHost looks host up in the table.
func (r StaticResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}
	if addrs := r[host]; len(addrs) > 0 {
		return addrs, nil
	}
	return nil, neterr.Wrap(neterr.NameNotResolved, fmt.Errorf("no addresses for %q", host))
}
