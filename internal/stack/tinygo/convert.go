//go:build linux

package tinygo

import (
	"encoding/binary"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

func toUUID(u gatt.UUID) bluetooth.UUID {
	if v, ok := u.Uint16(); ok {
		return bluetooth.New16BitUUID(v)
	}
	return bluetooth.NewUUID(u.Full())
}

func toPermissions(p gatt.Prop) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if p&gatt.PropBroadcast != 0 {
		f |= bluetooth.CharacteristicBroadcastPermission
	}
	if p&gatt.PropRead != 0 {
		f |= bluetooth.CharacteristicReadPermission
	}
	if p&gatt.PropWriteNR != 0 {
		f |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if p&gatt.PropWrite != 0 {
		f |= bluetooth.CharacteristicWritePermission
	}
	if p&gatt.PropNotify != 0 {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	if p&gatt.PropIndicate != 0 {
		f |= bluetooth.CharacteristicIndicatePermission
	}
	return f
}

// charRef locates a characteristic in a flat attribute table.
type charRef struct {
	decl  int
	value int
	props gatt.Prop
}

// characteristics pairs every characteristic declaration with the value
// attribute that follows it. Declarations without a value are skipped.
func characteristics(table []gatt.Attribute) []charRef {
	var cc []charRef
	for i, a := range table {
		if a.Kind() != gatt.KindCharacteristic || len(a.Value) == 0 {
			continue
		}
		if i+1 >= len(table) || table[i+1].Kind() != gatt.KindValue {
			continue
		}
		cc = append(cc, charRef{decl: i, value: i + 1, props: gatt.Prop(a.Value[0])})
	}
	return cc
}

// advertisementOptions merges the advertising and scan response fields;
// BlueZ lays out the packets itself.
func advertisementOptions(name string, data, rsp adv.Fields, p adv.Params) bluetooth.AdvertisementOptions {
	opts := bluetooth.AdvertisementOptions{
		LocalName: name,
		Interval:  bluetooth.NewDuration(p.Interval()),
	}
	if data.LocalName != "" {
		opts.LocalName = data.LocalName
	}
	seen := make(map[gatt.UUID]bool)
	for _, f := range []adv.Fields{data, rsp} {
		for _, u := range f.ServiceUUIDs {
			if seen[u] {
				continue
			}
			seen[u] = true
			opts.ServiceUUIDs = append(opts.ServiceUUIDs, toUUID(u))
		}
		if len(f.ManufacturerData) >= 2 {
			opts.ManufacturerData = append(opts.ManufacturerData, bluetooth.ManufacturerDataElement{
				CompanyID: binary.LittleEndian.Uint16(f.ManufacturerData),
				Data:      f.ManufacturerData[2:],
			})
		}
	}
	return opts
}
