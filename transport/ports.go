// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s (USB %s:%s %s %s)", p.Name, p.VID, p.PID, p.Product, p.SerialNumber)
}

// ListPorts returns the serial ports currently present, sorted by name.
// The list may change at any time, so call it right before opening a port.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// PortByIndex resolves an index into the ListPorts result to a port name.
func PortByIndex(index int) (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(ports) {
		return "", fmt.Errorf("port index %d out of range, %d ports found", index, len(ports))
	}
	return ports[index].Name, nil
}
