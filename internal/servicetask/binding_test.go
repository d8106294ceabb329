package servicetask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAutoBinding_ReadsNestedPlaceholders(t *testing.T) {
	placeholders := []interface{}{
		map[string]interface{}{
			"element_id":   "ServiceTask_Notify",
			"element_name": "Notify",
			"element_type": "serviceTask",
			"placeholders": map[string]interface{}{
				"catalogEntryId": "cap_leave",
				"serviceTaskId":  "send_email",
			},
		},
	}

	binding, ok := resolveAutoBinding(placeholders, "ServiceTask_Notify", "Notify")
	assert.True(t, ok)
	assert.Equal(t, "cap_leave", binding.CatalogEntryID)
	assert.Equal(t, "send_email", binding.ServiceTaskID)
}

func TestResolveAutoBinding_MatchesByElementName(t *testing.T) {
	placeholders := []interface{}{
		map[string]interface{}{
			"element_id":   "ServiceTask_Other",
			"element_name": "Other",
			"placeholders": map[string]interface{}{
				"catalog_id": "cap_x",
				"task_id":    "task_y",
			},
		},
		map[string]interface{}{
			"element_id":   "ServiceTask_Notify",
			"element_name": "Notify",
			"placeholders": map[string]interface{}{
				"catalog_entry_id": "cap_leave",
				"service_task_id":  "send_email",
			},
		},
	}

	binding, ok := resolveAutoBinding(placeholders, "no-match-id", "Notify")
	assert.True(t, ok)
	assert.Equal(t, "cap_leave", binding.CatalogEntryID)
	assert.Equal(t, "send_email", binding.ServiceTaskID)
}

func TestResolveAutoBinding_NoMatchReturnsFalse(t *testing.T) {
	placeholders := []interface{}{
		map[string]interface{}{
			"element_id": "ServiceTask_Other",
			"placeholders": map[string]interface{}{
				"catalog_entry_id": "cap_x",
				"service_task_id":  "task_y",
			},
		},
	}

	_, ok := resolveAutoBinding(placeholders, "ServiceTask_Notify", "Notify")
	assert.False(t, ok)
}

func TestResolveAutoBinding_MissingPlaceholdersMapYieldsFalse(t *testing.T) {
	placeholders := []interface{}{
		map[string]interface{}{
			"element_id":   "ServiceTask_Notify",
			"element_name": "Notify",
		},
	}

	_, ok := resolveAutoBinding(placeholders, "ServiceTask_Notify", "Notify")
	assert.False(t, ok)
}
