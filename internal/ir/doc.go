// Package ir defines the in-memory intermediate representation for axiograph
// modules: schemas, relation signatures, constraints, rewrite rules, and
// instance tuples, plus the canonical JSON value model used everywhere a
// byte-stable serialization is required (certificates, golden traces).
//
// IR objects are immutable after the loader returns them. Nothing in this
// package touches storage or performs I/O.
package ir
