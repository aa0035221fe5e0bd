// Package mqtt provides the MQTT client used to expose the CEC unit to the
// rest of Gray Logic.
//
// This package manages:
//   - Connection to the broker with paho's auto-reconnect
//   - Online/offline status with Last Will and Testament
//   - Subscriptions that survive reconnects
//   - Topic builders for the graylogic/{category}/cec/{device} scheme
//
// # Topics
//
//	graylogic/command/cec/{device}   commands in (one_touch_play, standby)
//	graylogic/ack/cec/{device}       command results out
//	graylogic/state/cec/{device}     retained device state out
//	graylogic/event/cec/{kind}       bus events out
//	graylogic/health/cec             service health out
//	graylogic/system/cec/status      online/offline (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.State("player"), state, true)
package mqtt
