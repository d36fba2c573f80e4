// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

var spewConfig = spew.ConfigState{ //nolint:exhaustivestruct
	Indent:                  "  ",
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// DumpStruct renders a value with a stable, sorted-key spew dump, suitable
// for diffing two snapshots of a Registry or Transaction.
func DumpStruct(v interface{}) string {
	return spewConfig.Sdump(v)
}

// AssertEqualDump compares two values by their spew dump and reports a
// unified diff on mismatch instead of Go's default struct-equality
// failure message.
func AssertEqualDump(t *testing.T, label string, exp, act interface{}) bool {
	t.Helper()

	expStr := DumpStruct(exp)
	actStr := DumpStruct(act)
	if expStr == actStr {
		return true
	}

	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{ //nolint:exhaustivestruct
		A:        difflib.SplitLines(expStr),
		B:        difflib.SplitLines(actStr),
		FromFile: "Expected " + label,
		ToFile:   "Actual " + label,
		Context:  3,
	})
	t.Errorf("%s diff:\n%s", label, diff)
	return false
}
