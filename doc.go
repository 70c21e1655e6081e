// Package devices wires up an nRF52-style 2.4GHz mesh radio node: a
// soft-timer backbone (ticksrc, softtimer) drives a radio HAL (radio) that
// the ESB point-to-point link (esb), BLE advertiser (ble) and octal-tree
// mesh router (mesh) each build on, with a process-wide synchronous
// event bus (event) connecting them to the node's peripherals
// (peripherals/*). cmd/meshnode and cmd/meshgw are the node and gateway
// entry points; cmd/bench is a host-side SPI bring-up tool. See
// SPEC_FULL.md and DESIGN.md for the full module map and its grounding.
package devices
