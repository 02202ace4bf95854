// Package discovery finds receivers on the local network via mDNS.
//
// Receivers (or bridges fronting them) announce a DNS-SD service whose TXT
// records carry the model and control port:
//
//	_avrcontrol._tcp.local.
//	  instance: "Living Room T778"
//	  TXT:      model=T778  proto=telnet
//
// Browser aggregates answers per instance, merging addresses seen on several
// interfaces. Advertiser announces a service; the stub-receiver command uses
// it so consoles can discover the fake device.
package discovery
