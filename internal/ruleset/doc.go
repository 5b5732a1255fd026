// Package ruleset models packet-filter rules and the algebra over their match
// spaces.
//
// Every dimension type (Protocol, Address, PortSet, Interface, Aux) has a zero
// value that matches everything, so a zero Rule matches all packets. Contains
// is conservative: it returns true only when containment is provable, which
// keeps the analyzer from reporting redundancy it cannot justify.
package ruleset
