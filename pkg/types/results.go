package types

// CycleRepair records one broken card-set cycle. Cycle lists the names along
// the loop, starting and ending with the same card set; the parent link from
// Child to Parent was removed.
type CycleRepair struct {
	Cycle  []string `json:"cycle"`
	Child  string   `json:"child"`
	Parent string   `json:"parent"`
}

// UpgradeResult summarizes a finished upgrade attempt.
type UpgradeResult struct {
	RunID string `json:"run_id"`
	OK    bool   `json:"ok"`
	// Upgraded lists the tables that were below the current version.
	Upgraded []string `json:"upgraded,omitempty"`
	// FailedTables lists the tables whose copy failed.
	FailedTables []string `json:"failed_tables,omitempty"`
	Messages     []string `json:"messages,omitempty"`
	// Warning is set when the live store may have been left inconsistent.
	Warning string `json:"warning,omitempty"`
}
