// Package hwaccel selects how a render job uses acceleration hardware.
//
// A Strategy is chosen once by Select at job setup and injected into every
// layer decoder and the encoder. Device creation failure, an unknown device
// selector, or a codec that cannot use the device all demote the job to
// software with a warning; none of them is fatal.
package hwaccel
