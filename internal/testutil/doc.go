// Package testutil holds test doubles and helpers shared across packages
package testutil
