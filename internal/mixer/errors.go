package mixer

import "fmt"

func errBusNotFound(id BusId) error {
	return fmt.Errorf("mixer: channel routed to bus %q which does not exist", id)
}

func errMultipleMasters(count int) error {
	return fmt.Errorf("mixer: expected at most one master channel, found %d", count)
}
