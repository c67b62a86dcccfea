// Package health probes the record-store at startup. Three checks run in
// dependency order: the store is reachable, the log collection exists, and
// the current credential may insert into it. A failed check marks every
// later check failed without probing it.
package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/voiceback/voiceback/internal/identity"
	"github.com/voiceback/voiceback/internal/store"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPending Status = "pending"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

// CheckResult carries the outcome of one check plus operator guidance when
// it failed.
type CheckResult struct {
	Status      Status `json:"status"`
	Detail      string `json:"detail,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

// Report holds the three check results of a single run.
type Report struct {
	Reachability     CheckResult `json:"reachability"`
	CollectionExists CheckResult `json:"collection_exists"`
	InsertPermitted  CheckResult `json:"insert_permitted"`
}

// WritesPermitted reports whether log writes should be attempted at all.
func (r Report) WritesPermitted() bool {
	return r.Reachability.Status == StatusOK &&
		r.CollectionExists.Status == StatusOK &&
		r.InsertPermitted.Status == StatusOK
}

// Failed reports whether any check failed.
func (r Report) Failed() bool {
	return r.Reachability.Status == StatusFailed ||
		r.CollectionExists.Status == StatusFailed ||
		r.InsertPermitted.Status == StatusFailed
}

// Summary is a one-line description suitable for a startup notification.
func (r Report) Summary() string {
	switch {
	case r.Reachability.Status == StatusFailed:
		return "record store unreachable: " + r.Reachability.Detail
	case r.CollectionExists.Status == StatusFailed:
		return "log collection missing: " + r.CollectionExists.Detail
	case r.InsertPermitted.Status == StatusFailed:
		return "log writes denied: " + r.InsertPermitted.Remediation
	default:
		return "record store healthy"
	}
}

// Checker runs the startup probes against a store.
type Checker struct {
	store      store.Store
	collection string
	identity   identity.Provider
}

func NewChecker(s store.Store, collection string, idp identity.Provider) *Checker {
	return &Checker{store: s, collection: collection, identity: idp}
}

const inherited = "not probed: an earlier check failed"

// Run executes the checks in order and returns the report. It never returns
// an error; failures are captured per check.
func (c *Checker) Run(ctx context.Context) Report {
	var r Report
	r.Reachability = c.checkReachability(ctx)
	if r.Reachability.Status != StatusOK {
		r.CollectionExists = CheckResult{Status: StatusFailed, Detail: inherited}
		r.InsertPermitted = CheckResult{Status: StatusFailed, Detail: inherited}
		return r
	}
	r.CollectionExists = c.checkCollectionExists(ctx)
	if r.CollectionExists.Status != StatusOK {
		r.InsertPermitted = CheckResult{Status: StatusFailed, Detail: inherited}
		return r
	}
	r.InsertPermitted = c.checkInsertPermitted(ctx)
	return r
}

// checkReachability issues a lightweight read. Any classified response,
// including a missing collection or a denied read, proves the store is
// reachable; only an unclassified failure counts as unreachable.
func (c *Checker) checkReachability(ctx context.Context) CheckResult {
	_, err := c.store.Select(ctx, c.collection, store.Query{Limit: 1})
	if err == nil || errors.Is(err, store.ErrCollectionNotFound) || errors.Is(err, store.ErrPermissionDenied) {
		return CheckResult{Status: StatusOK}
	}
	return CheckResult{
		Status:      StatusFailed,
		Detail:      err.Error(),
		Remediation: "verify the database URL and that the record store is accepting connections",
	}
}

func (c *Checker) checkCollectionExists(ctx context.Context) CheckResult {
	_, err := c.store.Select(ctx, c.collection, store.Query{Limit: 1})
	switch {
	case err == nil, errors.Is(err, store.ErrPermissionDenied):
		return CheckResult{Status: StatusOK}
	case errors.Is(err, store.ErrCollectionNotFound):
		return CheckResult{
			Status:      StatusFailed,
			Detail:      fmt.Sprintf("collection %q does not exist", c.collection),
			Remediation: fmt.Sprintf("create the %q table in the record store", c.collection),
		}
	default:
		return CheckResult{Status: StatusFailed, Detail: err.Error()}
	}
}

// checkInsertPermitted performs a trial insert of a throwaway probe row. A
// permission denial gets different guidance depending on whether a user is
// signed in, since the fixes differ.
func (c *Checker) checkInsertPermitted(ctx context.Context) CheckResult {
	row := store.Row{
		"id":   uuid.NewString(),
		"kind": "health_probe",
		"text": "insert permission probe",
	}
	if user, ok := c.identity.CurrentUser(); ok {
		row["user_id"] = user.ID
	}
	err := c.store.Insert(ctx, c.collection, row)
	switch {
	case err == nil:
		return CheckResult{Status: StatusOK}
	case errors.Is(err, store.ErrPermissionDenied):
		if _, signedIn := c.identity.CurrentUser(); signedIn {
			return CheckResult{
				Status:      StatusFailed,
				Detail:      "insert denied despite being signed in",
				Remediation: "check that the row security policy covers the authenticated role",
			}
		}
		return CheckResult{
			Status:      StatusFailed,
			Detail:      "insert denied for anonymous access",
			Remediation: "sign in, or update the row security policy to allow anonymous inserts",
		}
	default:
		return CheckResult{Status: StatusFailed, Detail: err.Error()}
	}
}
