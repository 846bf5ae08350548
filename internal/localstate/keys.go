package localstate

import "fmt"

// Key layout. Wizard names, workspace and session IDs are slugs or UUIDs, so
// the keys double as file names without escaping.

func pointerKey(wizard, workspaceID string) string {
	return fmt.Sprintf("%s-session-state-%s", wizard, workspaceID)
}

func snapshotKey(wizard, workspaceID, sessionID string) string {
	return fmt.Sprintf("%s-state-%s-%s", wizard, workspaceID, sessionID)
}

func fieldsKey(wizard, workspaceID, sessionID string, step int) string {
	return fmt.Sprintf("%s-fields-%s-%s-%d", wizard, workspaceID, sessionID, step)
}

func markerKey(wizard, workspaceID, action string) string {
	return fmt.Sprintf("%s-%s-in-progress-%s", wizard, action, workspaceID)
}

func awaitingKey(wizard, workspaceID string) string {
	return fmt.Sprintf("%s-awaiting-question-%s", wizard, workspaceID)
}

func recoveryKey(sessionID string) string {
	return fmt.Sprintf("%s-recovery-attempted", sessionID)
}

func activePlanKey(workspaceID string) string {
	return fmt.Sprintf("active-plan-%s", workspaceID)
}
