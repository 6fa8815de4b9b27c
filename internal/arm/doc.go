// Package arm drives the desktop robot arm over its ASCII serial protocol.
//
// Link frames each command as "#<seq> <command>\n" and reads one response
// line back. Arm layers the firmware opcodes on top (G0/G204 moves, G202
// servo, M231 pump, M232 grip, M240 digital out, P241 analog in, P233 limit
// switch, M200 motion state, P220 position, P201..P205 identity). Session
// owns the serial port exclusively and supports handing it to another process
// and taking it back.
package arm
