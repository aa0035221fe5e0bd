// Package bridge connects the CEC unit to the Gray Logic MQTT bus.
//
// Topics (see mqtt.Topics):
//
//	graylogic/command/cec/{device}   in   CommandMessage (one_touch_play, standby)
//	graylogic/ack/cec/{device}       out  AckMessage
//	graylogic/state/cec/{device}     out  StateMessage, retained
//	graylogic/event/cec/{kind}       out  EventMessage (active_source, power)
//	graylogic/health/cec             out  HealthMessage, retained
//
// One-touch-play produces two acks: "accepted" when the request reaches the
// device, then "completed", "failed" or "timeout" carrying the sequence
// result.
//
// Unit events arrive on the service loop. The bridge only queues them; a
// single publisher goroutine serialises JSON and talks to the broker, so a
// slow broker never stalls the bus.
package bridge
