// Package testutil provides testing utilities for the txtracker module.
//
// This package contains test fixtures (hashes, operation labels, fee
// amounts) and a scripted in-memory chain client that plays back status
// event sequences on demand.
//
// # Important Note on Import Cycles
//
// testutil imports the txtracker package (ScriptedClient implements
// txtracker.ChainClient), so tests that use it must live in the external
// txtracker_test package. Internal tests of the root package cannot
// import testutil.
package testutil
