package httpapi

import (
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
	"github.com/commonshub/hubdoor/internal/hubdoor/store"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

// ── Check ────────────────────────────────────────────────────────────────────

func checkToProto(open bool) *wrapperspb.BoolValue {
	return wrapperspb.Bool(open)
}

// ── Open ─────────────────────────────────────────────────────────────────────

func deniedFromError(err error) types.DeniedResponse {
	kind := access.KindOf(err)
	reason := access.ReasonOf(err)
	if kind == 0 {
		// Unclassified errors are internal; do not leak them.
		reason = "unexpected server error"
	}
	return types.DeniedResponse{OK: false, Kind: kind.String(), Reason: reason}
}

// ── Audit ────────────────────────────────────────────────────────────────────

func auditToWire(recs []store.AuditRecord) []types.AuditEntry {
	out := make([]types.AuditEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, types.AuditEntry{
			ID:          r.ID,
			At:          r.At,
			Name:        r.Name,
			Method:      r.Method,
			PrincipalID: r.PrincipalID,
			Metadata:    r.Metadata,
		})
	}
	return out
}
