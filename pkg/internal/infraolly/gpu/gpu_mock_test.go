package gpu

import "github.com/stretchr/testify/mock"

type InterfaceMock struct {
	mock.Mock
}

func (m *InterfaceMock) ListComputeProcesses(device int) ([]ProcessMemory, error) {
	args := m.Called(device)
	procs, _ := args.Get(0).([]ProcessMemory)
	return procs, args.Error(1)
}

func (m *InterfaceMock) ShouldListProcesses(procs ...ProcessMemory) {
	m.On("ListComputeProcesses", firstDevice).Return(procs, nil)
}

func (m *InterfaceMock) Shutdown() error {
	return m.Called().Error(0)
}
