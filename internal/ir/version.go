package ir

// Version is the IR schema version embedded in every certificate. Bump when
// canonical serialization or term rendering changes shape.
const Version = "1"
