// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides the CUE loading steps shared by the project file and
// the built-in task table:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify it with a schema definition
//  3. Validate and decode
//
// # Usage
//
//	//go:embed tasks_schema.cue
//	var schema []byte
//
//	result, err := cueutil.ParseAndDecode[Table](schema, data, "#Table",
//	    cueutil.WithFilename("bootforge.cue"))
//	if err != nil {
//	    return nil, err // message carries the CUE path of the offending field
//	}
package cueutil
