package advisory

import (
	"fmt"
	"strings"

	"ridecore/internal/types"
)

const geocodingSystemPrompt = `You are a geocoding assistant for a ride-sharing service.
Given a natural language destination description and optional pickup location context,
return the most likely coordinates and a normalized address.

Respond ONLY with valid JSON in this exact format:
{
  "lat": <number>,
  "lng": <number>,
  "address": "<normalized street address>",
  "confidence": <number between 0 and 1>
}

If the destination is ambiguous, pick the most popular/well-known location.
If you truly cannot determine coordinates, return confidence: 0.`

const dispatchSystemPrompt = `You are an AI dispatch system for a ride-sharing service.
Given a ride request and a list of nearby available drivers, select the BEST driver.

Consider these factors (in rough priority order):
1. Distance to pickup (closer is better)
2. Driver rating (higher is better)
3. Experience / total trips (more experienced is better for longer rides)

Respond ONLY with valid JSON:
{
  "selectedDriverId": "<id of chosen driver>",
  "reasoning": "<1-2 sentence explanation of why this driver was chosen>"
}`

func geocodingUserMessage(text string, pickup *types.Point) string {
	if pickup == nil {
		return fmt.Sprintf("Destination: %q", text)
	}
	return fmt.Sprintf("Destination: %q\nPickup area: lat=%g, lng=%g", text, pickup.Lat, pickup.Lng)
}

func dispatchUserMessage(ride RideGeometry, candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ride pickup: (%g, %g)\n", ride.Pickup.Lat, ride.Pickup.Lng)
	fmt.Fprintf(&b, "Ride destination: (%g, %g)\n\nAvailable drivers:\n", ride.Destination.Lat, ride.Destination.Lng)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. ID: %s, Name: %s, Distance: %.2fkm, Rating: %.2f/5, Trips: %d, Vehicle: %s %s\n",
			i+1, c.ID, c.Name, c.DistanceKm, c.Rating, c.TotalTrips, c.VehicleMake, c.VehicleModel)
	}
	return b.String()
}
