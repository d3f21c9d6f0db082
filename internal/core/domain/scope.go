package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ScopeKey identifies one cached view of a tenant's queue: the tenant
// partition plus the attendant and/or module the view is filtered to.
// The zero UUID means "not filtered". ScopeKey is comparable and is used
// directly as a map key.
type ScopeKey struct {
	TenantID    uuid.UUID
	AttendantID uuid.UUID
	ModuleID    uuid.UUID
}

// ScopeForAttendant is the scope of an attendant console.
func ScopeForAttendant(tenantID, attendantID uuid.UUID) ScopeKey {
	return ScopeKey{TenantID: tenantID, AttendantID: attendantID}
}

// ScopeForModule is the scope of a module-filtered view.
func ScopeForModule(tenantID, moduleID uuid.UUID) ScopeKey {
	return ScopeKey{TenantID: tenantID, ModuleID: moduleID}
}

// ScopeForTenant is the scope of a tenant-wide view, such as a public display.
func ScopeForTenant(tenantID uuid.UUID) ScopeKey {
	return ScopeKey{TenantID: tenantID}
}

func (s ScopeKey) String() string {
	return fmt.Sprintf("tenant=%s attendant=%s module=%s", s.TenantID, s.AttendantID, s.ModuleID)
}
