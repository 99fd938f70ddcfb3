package adv

import (
	"fmt"
	"time"
)

// PDU is the advertising PDU type.
type PDU uint8

const (
	PDUInd           PDU = 0x00 // connectable undirected
	PDUDirectIndHigh PDU = 0x01
	PDUScanInd       PDU = 0x02
	PDUNonConnInd    PDU = 0x03
	PDUDirectIndLow  PDU = 0x04
)

func (t PDU) String() string {
	switch t {
	case PDUInd:
		return "ADV_IND"
	case PDUDirectIndHigh:
		return "ADV_DIRECT_IND_HIGH"
	case PDUScanInd:
		return "ADV_SCAN_IND"
	case PDUNonConnInd:
		return "ADV_NONCONN_IND"
	case PDUDirectIndLow:
		return "ADV_DIRECT_IND_LOW"
	}
	return fmt.Sprintf("PDU(%d)", uint8(t))
}

// AddrType is the own address type used while advertising.
type AddrType uint8

const (
	AddrPublic AddrType = iota
	AddrRandom
	AddrRPAPublic
	AddrRPARandom
)

// ChannelMap selects the primary advertising channels.
type ChannelMap uint8

const (
	Chan37  ChannelMap = 0x01
	Chan38  ChannelMap = 0x02
	Chan39  ChannelMap = 0x04
	ChanAll ChannelMap = Chan37 | Chan38 | Chan39
)

// FilterPolicy restricts which scanners and initiators are served.
type FilterPolicy uint8

const (
	FilterScanAnyConAny FilterPolicy = iota
	FilterScanWhiteConAny
	FilterScanAnyConWhite
	FilterScanWhiteConWhite
)

// Interval limits, in 0.625 ms units.
const (
	MinInterval = 0x0020
	MaxInterval = 0x4000
)

// Params are the advertising parameters passed on start.
type Params struct {
	IntervalMin  uint16 // 0.625 ms units
	IntervalMax  uint16 // 0.625 ms units
	Type         PDU
	OwnAddrType  AddrType
	ChannelMap   ChannelMap
	FilterPolicy FilterPolicy
}

// DefaultParams returns connectable undirected advertising on all three
// channels every 20 to 40 ms from the public address.
func DefaultParams() Params {
	return Params{
		IntervalMin:  0x20,
		IntervalMax:  0x40,
		Type:         PDUInd,
		OwnAddrType:  AddrPublic,
		ChannelMap:   ChanAll,
		FilterPolicy: FilterScanAnyConAny,
	}
}

// Validate checks interval bounds and the channel map.
func (p Params) Validate() error {
	if p.IntervalMin < MinInterval || p.IntervalMax > MaxInterval {
		return fmt.Errorf("adv: interval [%#x, %#x] outside [%#x, %#x]", p.IntervalMin, p.IntervalMax, MinInterval, MaxInterval)
	}
	if p.IntervalMin > p.IntervalMax {
		return fmt.Errorf("adv: interval min %#x above max %#x", p.IntervalMin, p.IntervalMax)
	}
	if p.ChannelMap == 0 || p.ChannelMap&^ChanAll != 0 {
		return fmt.Errorf("adv: invalid channel map %#x", uint8(p.ChannelMap))
	}
	if p.Type > PDUDirectIndLow {
		return fmt.Errorf("adv: invalid advertising type %d", uint8(p.Type))
	}
	return nil
}

// Interval returns the minimum advertising interval as a duration.
func (p Params) Interval() time.Duration {
	return Units(p.IntervalMin)
}

// Units converts 0.625 ms units to a duration.
func Units(u uint16) time.Duration {
	return time.Duration(u) * 625 * time.Microsecond
}

// Config is everything the advertiser needs: raw payloads plus parameters.
type Config struct {
	AdvData []byte
	ScanRsp []byte
	Params  Params
}

// NewConfig encodes the advertising and scan response fields.
func NewConfig(advData, scanRsp Fields, p Params) (Config, error) {
	a, err := advData.Encode()
	if err != nil {
		return Config{}, fmt.Errorf("adv: encode advertising data: %w", err)
	}
	s, err := scanRsp.Encode()
	if err != nil {
		return Config{}, fmt.Errorf("adv: encode scan response: %w", err)
	}
	c := Config{AdvData: a, ScanRsp: s, Params: p}
	return c, c.Validate()
}

// Validate checks both payloads and the parameters.
func (c Config) Validate() error {
	if err := Validate(c.AdvData); err != nil {
		return fmt.Errorf("adv: advertising data: %w", err)
	}
	if err := Validate(c.ScanRsp); err != nil {
		return fmt.Errorf("adv: scan response: %w", err)
	}
	return c.Params.Validate()
}
