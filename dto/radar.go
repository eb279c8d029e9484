package dto

type RadarScanSummary struct {
	ProfilesScanned int `json:"profilesScanned"`
	UsersSkipped    int `json:"usersSkipped"`
	UsersFailed     int `json:"usersFailed"`
	TotalMatches    int `json:"totalMatches"`
	TotalQueued     int `json:"totalQueued"`
	DrainsRequested int `json:"drainsRequested"`
}

// Add folds one user's scan into s.
func (s *RadarScanSummary) Add(other *RadarScanSummary) {
	if other == nil {
		return
	}
	s.ProfilesScanned += other.ProfilesScanned
	s.UsersSkipped += other.UsersSkipped
	s.UsersFailed += other.UsersFailed
	s.TotalMatches += other.TotalMatches
	s.TotalQueued += other.TotalQueued
	s.DrainsRequested += other.DrainsRequested
}
