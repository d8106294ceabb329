package servicetask

import "strings"

// catalogEntryKeys and taskKeys are the fixed, lowercased key variants a
// definition version's catalog_binding_placeholders entry is searched for
// when auto-binding a ServiceTask that carries neither an explicit
// catalog_entry_id nor service_task_id on its start request.
var catalogEntryKeys = []string{"catalog_entry_id", "catalogentryid", "catalog_id", "catalogid", "capability_id", "capabilityid"}
var taskKeys = []string{"service_task_id", "servicetaskid", "task_id", "taskid", "service_task", "servicetask"}

// resolvedBinding is what auto-binding extracts from a matching placeholder.
type resolvedBinding struct {
	CatalogEntryID string
	ServiceTaskID  string
}

// resolveAutoBinding scans placeholders for one whose element_id or
// element_name matches elementID/elementName, and extracts catalog/task
// ids using the fixed lowercased key variants. Returns ok=false when no
// placeholder matches or none yields both ids.
func resolveAutoBinding(placeholders []interface{}, elementID, elementName string) (resolvedBinding, bool) {
	for _, raw := range placeholders {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if !matchesElement(entry, elementID, elementName) {
			continue
		}
		attrs, _ := entry["placeholders"].(map[string]interface{})
		catalogEntryID := firstStringValue(attrs, catalogEntryKeys)
		serviceTaskID := firstStringValue(attrs, taskKeys)
		if catalogEntryID != "" && serviceTaskID != "" {
			return resolvedBinding{CatalogEntryID: catalogEntryID, ServiceTaskID: serviceTaskID}, true
		}
	}
	return resolvedBinding{}, false
}

func matchesElement(entry map[string]interface{}, elementID, elementName string) bool {
	if id, ok := entry["element_id"].(string); ok && id != "" && id == elementID {
		return true
	}
	if name, ok := entry["element_name"].(string); ok && name != "" && name == elementName {
		return true
	}
	return false
}

func firstStringValue(entry map[string]interface{}, keys []string) string {
	lowered := make(map[string]interface{}, len(entry))
	for k, v := range entry {
		lowered[strings.ToLower(k)] = v
	}
	for _, key := range keys {
		if v, ok := lowered[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
