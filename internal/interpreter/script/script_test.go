package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SimpleAssignment(t *testing.T) {
	data := map[string]interface{}{}
	res, err := Run(`data["approved"] = true`, data, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, true, res.Data["approved"])
}

func TestRun_SetsResult(t *testing.T) {
	data := map[string]interface{}{"amount": int64(150)}
	res, err := Run(`result = data["amount"] > 100`, data, map[string]interface{}{})
	require.NoError(t, err)
	require.True(t, res.HasResult)
	assert.Equal(t, true, res.ResultValue)
}

func TestRun_ArithmeticOnTaskData(t *testing.T) {
	taskData := map[string]interface{}{"count": int64(2)}
	res, err := Run(`task_data["count"] = task_data["count"] + 1`, map[string]interface{}{}, taskData)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.TaskData["count"])
}

func TestRun_IfElse(t *testing.T) {
	data := map[string]interface{}{"amount": int64(50)}
	res, err := Run(`
if data["amount"] > 100 {
	result = "high"
} else {
	result = "low"
}
`, data, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "low", res.ResultValue)
}

func TestRun_BuiltinLen(t *testing.T) {
	data := map[string]interface{}{"items": []interface{}{int64(1), int64(2), int64(3)}}
	res, err := Run(`result = len(data["items"])`, data, map[string]interface{}{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.ResultValue)
}

func TestRun_BuiltinSum(t *testing.T) {
	data := map[string]interface{}{"items": []interface{}{int64(1), int64(2), int64(3)}}
	res, err := Run(`result = sum(data["items"])`, data, map[string]interface{}{})
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.ResultValue)
}

func TestRun_EmptyScriptFails(t *testing.T) {
	_, err := Run(``, map[string]interface{}{}, map[string]interface{}{})
	assert.Error(t, err)
}

func TestRun_RejectsSelectorExpression(t *testing.T) {
	_, err := Run(`result = data.Foo`, map[string]interface{}{}, map[string]interface{}{})
	require.Error(t, err)
	var ce *CompileError
	assert.ErrorAs(t, err, &ce)
}

func TestRun_RejectsUnknownFunctionCall(t *testing.T) {
	_, err := Run(`result = os.Exit(1)`, map[string]interface{}{}, map[string]interface{}{})
	assert.Error(t, err)
}

func TestRun_RejectsImportLikeConstruct(t *testing.T) {
	_, err := Run(`var x = 1`, map[string]interface{}{}, map[string]interface{}{})
	assert.Error(t, err)
}

func TestRun_RuntimeErrorOnDivisionByZero(t *testing.T) {
	data := map[string]interface{}{"x": int64(1), "y": int64(0)}
	_, err := Run(`result = data["x"] / data["y"]`, data, map[string]interface{}{})
	require.Error(t, err)
	var re *RuntimeError
	assert.ErrorAs(t, err, &re)
}

func TestRun_ForLoop(t *testing.T) {
	res, err := Run(`
total := 0
for i := 0; i < 5; i++ {
	total = total + i
}
result = total
`, map[string]interface{}{}, map[string]interface{}{})
	require.NoError(t, err)
	assert.EqualValues(t, 10, res.ResultValue)
}

func TestRun_RangeOverList(t *testing.T) {
	data := map[string]interface{}{"items": []interface{}{int64(1), int64(2), int64(3)}}
	res, err := Run(`
total := 0
for _, v := range data["items"] {
	total = total + v
}
result = total
`, data, map[string]interface{}{})
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.ResultValue)
}
