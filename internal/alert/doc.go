// Package alert turns incoming webhook JSON into the compact message a
// pager displays.
//
// Webhook producers disagree on field names, so each output field is
// filled from an ordered list of candidate keys. The first key present
// with a non-null value wins. Supporting a new producer means appending a
// candidate, not adding a branch.
package alert
