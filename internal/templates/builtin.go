package templates

import "github.com/dshills/testgap/internal/entity"

const pytestFunction = `import pytest

from {module_path} import {target_name}


def test_{function_name}():
    """Test {function_name}: {test_description}"""
    # Arrange
    {arrange_code}

    # Act
    result = {function_call}

    # Assert
    {assert_code}
`

const pytestMethod = `import pytest

from {module_path} import {class_name}


def test_{class_name}_{method_name}():
    """Test {class_name}.{method_name}: {test_description}"""
    # Arrange
    {instance_create}
    {arrange_code}

    # Act
    result = {method_call}

    # Assert
    {assert_code}
`

const pytestClass = `import pytest

from {module_path} import {class_name}


class Test{class_name}:
    """Tests for {class_name}."""

    @pytest.fixture
    def {fixture_name}(self):
        {fixture_code}
        return {instance_creation}

    {test_methods}
`

const unittestFunction = `import unittest

from {module_path} import {target_name}


class Test{test_name}(unittest.TestCase):
    def test_{function_name}(self):
        """{test_description}"""
        {arrange_code}
        result = {function_call}
        {assert_code}


if __name__ == "__main__":
    unittest.main()
`

const unittestClass = `import unittest

from {module_path} import {class_name}


class Test{class_name}(unittest.TestCase):
    def setUp(self):
        {fixture_code}
        self.{fixture_name} = {instance_creation}

    {test_methods}


if __name__ == "__main__":
    unittest.main()
`

const gotestFunction = `package {package_name}

import (
	"testing"
)

// {test_description}
func Test{test_name}(t *testing.T) {
	{arrange_code}

	{result_binding}{function_call}

	{assert_code}
}
`

const gotestMethod = `package {package_name}

import (
	"testing"
)

// {test_description}
func Test{class_name}_{method_name}(t *testing.T) {
	{instance_create}
	{arrange_code}

	{result_binding}{method_call}

	{assert_code}
}
`

const gotestClass = `package {package_name}

import (
	"testing"
)

func Test{class_name}(t *testing.T) {
	{fixture_code}
	{fixture_name} := {instance_creation}

	{test_methods}
}
`

const jestFunction = `import { {target_name} } from '{module_path}';

describe('{function_name}', () => {
  test('should {test_description}', () => {
    // Arrange
    {arrange_code}

    // Act
    const result = {function_call};

    // Assert
    {assert_code}
  });
});
`

const jestClass = `import { {class_name} } from '{module_path}';

describe('{class_name}', () => {
  let {fixture_name};

  beforeEach(() => {
    {fixture_code}
    {fixture_name} = new {class_name}({constructor_args});
  });

  {test_methods}
});
`

var builtins = []Template{
	{Name: "pytest_function", Language: "python", Framework: "pytest", Shape: entity.KindFunction, Body: pytestFunction,
		Description: "pytest test for a module-level function"},
	{Name: "pytest_method", Language: "python", Framework: "pytest", Shape: entity.KindMethod, Body: pytestMethod,
		Description: "pytest test for a single method"},
	{Name: "pytest_class", Language: "python", Framework: "pytest", Shape: entity.KindClass, Body: pytestClass,
		Description: "pytest test class with a fixture instance"},
	{Name: "unittest_function", Language: "python", Framework: "unittest", Shape: entity.KindFunction, Body: unittestFunction,
		Description: "unittest TestCase for a module-level function"},
	{Name: "unittest_class", Language: "python", Framework: "unittest", Shape: entity.KindClass, Body: unittestClass,
		Description: "unittest TestCase with setUp"},
	{Name: "gotest_function", Language: "go", Framework: "gotest", Shape: entity.KindFunction, Body: gotestFunction,
		Description: "go test for a package-level function"},
	{Name: "gotest_method", Language: "go", Framework: "gotest", Shape: entity.KindMethod, Body: gotestMethod,
		Description: "go test for a single method"},
	{Name: "gotest_class", Language: "go", Framework: "gotest", Shape: entity.KindClass, Body: gotestClass,
		Description: "go test exercising a struct type"},
	{Name: "jest_function", Language: "javascript", Framework: "jest", Shape: entity.KindFunction, Body: jestFunction,
		Description: "jest describe block for an exported function"},
	{Name: "jest_class", Language: "javascript", Framework: "jest", Shape: entity.KindClass, Body: jestClass,
		Description: "jest describe block with beforeEach instance"},
}

// Default returns a registry populated with the built-in templates.
func Default() *Registry {
	r := &Registry{}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// DefaultFramework returns the framework used for language when none is
// configured or detected.
func DefaultFramework(language string) string {
	switch language {
	case "python":
		return "pytest"
	case "go":
		return "gotest"
	case "javascript", "typescript":
		return "jest"
	}
	return ""
}
