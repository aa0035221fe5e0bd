// Package influxdb writes CEC bus activity to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: Connect pings the
// server and sets up the non-blocking batched write API, and Recorder turns
// unit events into points:
//
//   - cec_active_source: active source changes per hosted device
//   - cec_device_state: is-active-source flag and switch input port
//   - cec_one_touch_play: sequence results tagged by result name
//   - cec_frames: every frame received or sent, tagged by direction and opcode
//   - cec_power: the unit's power transitions
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	u.AddObserver(influxdb.NewRecorder(client))
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
