package mosaico

import "errors"

// ErrClientClosed is returned by any Client method invoked after Close.
var ErrClientClosed = errors.New("mosaico: client is closed")

// ErrUnknownOntology is returned by DefaultMessageFactory when no ontology
// was registered for the requested tag via RegisterOntology.
var ErrUnknownOntology = errors.New("mosaico: ontology type is not registered")
