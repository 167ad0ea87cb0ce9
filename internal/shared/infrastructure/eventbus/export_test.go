package eventbus

// EnvelopeForTest exposes the AMQP message shape to the external tests.
var EnvelopeForTest = envelope
