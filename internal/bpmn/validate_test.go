package bpmn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leaveRequestBPMN = `<?xml version="1.0" encoding="UTF-8"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="leave_request_v1" name="Leave Request">
    <startEvent id="StartEvent_1" />
    <userTask id="UserTask_Approve" name="Approve" />
    <serviceTask id="ServiceTask_Notify" name="Notify" catalogEntryId="cap_leave" serviceTaskId="send_email" />
    <endEvent id="EndEvent_1" />
    <sequenceFlow id="Flow_1" sourceRef="StartEvent_1" targetRef="UserTask_Approve" />
    <sequenceFlow id="Flow_2" sourceRef="UserTask_Approve" targetRef="ServiceTask_Notify" />
    <sequenceFlow id="Flow_3" sourceRef="ServiceTask_Notify" targetRef="EndEvent_1" />
  </process>
</definitions>`

func TestValidate_Valid(t *testing.T) {
	snapshot, errs := Validate(leaveRequestBPMN)
	require.Empty(t, errs)
	require.NotNil(t, snapshot)
	assert.Equal(t, "leave_request_v1", snapshot.ProcessKey)
	assert.Equal(t, "Leave Request", snapshot.ProcessName)
	require.Len(t, snapshot.CatalogBindingPlaceholders, 1)
	assert.Equal(t, "ServiceTask_Notify", snapshot.CatalogBindingPlaceholders[0].ElementID)
}

func TestValidate_MalformedXML(t *testing.T) {
	snapshot, errs := Validate("<definitions><unclosed>")
	assert.Nil(t, snapshot)
	require.Len(t, errs, 1)
	assert.Equal(t, "invalid_bpmn_xml", errs[0].Code)
	assert.Equal(t, "", errs[0].Path)
}

func TestValidate_MissingProcessKey(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process />
</definitions>`
	snapshot, errs := Validate(xml)
	assert.Nil(t, snapshot)
	require.NotEmpty(t, errs)
	assert.Equal(t, "missing_process_key", errs[0].Code)
}

func TestValidate_MultipleProcesses(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="p1" />
  <process id="p2" />
</definitions>`
	_, errs := Validate(xml)
	require.NotEmpty(t, errs)
	assert.Equal(t, "multiple_processes", errs[0].Code)
}

func TestValidate_UnsupportedElement_Timer(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="p1">
    <boundaryEvent id="b1">
      <timerEventDefinition />
    </boundaryEvent>
  </process>
</definitions>`
	_, errs := Validate(xml)
	require.NotEmpty(t, errs)
	var foundBoundary, foundTimer bool
	for _, e := range errs {
		assert.Equal(t, "unsupported_bpmn_element", e.Code)
		if e.Message == "Boundary events are not supported." {
			foundBoundary = true
		}
		if e.Message == "Timer events are not supported." {
			foundTimer = true
		}
	}
	assert.True(t, foundBoundary)
	assert.True(t, foundTimer)
}

func TestValidate_UnknownElement(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="p1">
    <bogusElement id="x1" />
  </process>
</definitions>`
	_, errs := Validate(xml)
	require.NotEmpty(t, errs)
	assert.Equal(t, "unsupported_bpmn_element", errs[0].Code)
	assert.Contains(t, errs[0].Message, "bogusElement")
}

func TestValidate_CompensationAttribute(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="p1">
    <scriptTask id="s1" isForCompensation="true" />
  </process>
</definitions>`
	_, errs := Validate(xml)
	require.NotEmpty(t, errs)
	assert.Equal(t, "Compensation is not supported.", errs[len(errs)-1].Message)
}

func TestValidate_ErrorsAreSorted(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="p1">
    <zzzUnknown id="z1" />
    <aaaUnknown id="a1" />
  </process>
</definitions>`
	_, errs := Validate(xml)
	require.Len(t, errs, 2)
	for i := 1; i < len(errs); i++ {
		assert.LessOrEqual(t, errs[i-1].Path, errs[i].Path)
	}
}

func TestValidate_FormSchemaRefs(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="p1">
    <userTask id="u1" formKey="form_leave_request" />
  </process>
</definitions>`
	snapshot, errs := Validate(xml)
	require.Empty(t, errs)
	require.Len(t, snapshot.FormSchemaRefs, 1)
	assert.Equal(t, "u1", snapshot.FormSchemaRefs[0].ElementID)
	assert.Equal(t, "form_leave_request", snapshot.FormSchemaRefs[0].FormKey)
}

func TestValidate_ForeignNamespaceIgnored(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:custom="http://example.com/custom">
  <process id="p1">
    <custom:widget id="w1" />
  </process>
</definitions>`
	snapshot, errs := Validate(xml)
	require.Empty(t, errs)
	require.NotNil(t, snapshot)
}

func TestValidate_BPMNDINamespaceAccepted(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:bpmndi="http://www.omg.org/spec/BPMN/20100524/DI">
  <process id="p1">
    <startEvent id="s1" />
  </process>
  <bpmndi:BPMNDiagram id="d1" />
</definitions>`
	_, errs := Validate(xml)
	require.Empty(t, errs)
}
