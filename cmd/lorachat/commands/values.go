// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/store"
)

// priorityValue is a pflag.Value accepting low, normal or high.
type priorityValue schema.Priority

func (v *priorityValue) String() string { return string(*v) }
func (v *priorityValue) Type() string   { return "priority" }

func (v *priorityValue) Set(s string) error {
	priority, err := schema.ParsePriority(s)
	if err != nil {
		return err
	}
	*v = priorityValue(priority)
	return nil
}

// filterValue is a pflag.Value accepting all, sent or received.
type filterValue store.Filter

func (v *filterValue) String() string { return store.Filter(*v).String() }
func (v *filterValue) Type() string   { return "filter" }

func (v *filterValue) Set(s string) error {
	filter, err := store.ParseFilter(s)
	if err != nil {
		return err
	}
	*v = filterValue(filter)
	return nil
}
